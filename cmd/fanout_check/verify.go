package main

import (
	"fmt"
	"strings"
)

// sentMessage es lo que un cliente del check envió.
type sentMessage struct {
	Username string
	Body     string
}

// report resume el resultado de un cliente.
type report struct {
	Client  int
	Missing []string
	// OutOfOrder es true si un mismo emisor aparece con sus mensajes en otro orden.
	OutOfOrder bool
}

func (r report) ok() bool { return len(r.Missing) == 0 && !r.OutOfOrder }

// verifyDeliveries compara lo enviado con lo recibido por cada cliente.
// Solo exige orden relativo por emisor: mensajes de emisores distintos pueden intercalarse.
func verifyDeliveries(sent []sentMessage, received [][]sentMessage) []report {
	reports := make([]report, 0, len(received))
	for i, got := range received {
		r := report{Client: i}
		seen := make(map[sentMessage]int, len(got))
		for idx, m := range got {
			if _, dup := seen[m]; !dup {
				seen[m] = idx
			}
		}
		lastBySender := map[string]int{}
		for _, m := range sent {
			idx, ok := seen[m]
			if !ok {
				r.Missing = append(r.Missing, fmt.Sprintf("%s:%s", m.Username, m.Body))
				continue
			}
			if prev, ok := lastBySender[m.Username]; ok && idx < prev {
				r.OutOfOrder = true
			}
			lastBySender[m.Username] = idx
		}
		reports = append(reports, r)
	}
	return reports
}

// verifyPage revisa que la página devuelta por /api/messages contenga todo lo enviado
// y que los ids sean estrictamente crecientes.
func verifyPage(sent []sentMessage, page []pageMessage) error {
	for i := 1; i < len(page); i++ {
		if page[i].ID <= page[i-1].ID {
			return fmt.Errorf("ids no crecientes en posicion %d: %d <= %d", i, page[i].ID, page[i-1].ID)
		}
	}
	stored := make(map[sentMessage]bool, len(page))
	for _, m := range page {
		stored[sentMessage{Username: m.Sender, Body: m.Message}] = true
	}
	var missing []string
	for _, m := range sent {
		if !stored[m] {
			missing = append(missing, m.Username+":"+m.Body)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("faltan en el historial: %s", strings.Join(missing, ", "))
	}
	return nil
}
