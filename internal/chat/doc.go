// Package chat implementa el fan-out en tiempo real del chat grupal.
//
// Un Registry mantiene los miembros conectados de cada grupo y reparte cada
// evento publicado a la cola acotada de cada miembro. Una Session maneja una
// conexión: se une al grupo, persiste cada mensaje entrante y recién después lo
// publica, y deja el grupo al desconectarse. RedisRelay permite que varios
// procesos compartan el mismo grupo.
package chat
