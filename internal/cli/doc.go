// Package cli реализует команды CLI для управления Montage через HTTP API.
//
// CLI — тонкий клиент: вся логика на сервере, команды только формируют
// запросы и форматируют ответы. Структура команд:
//
//	montage project create --pipeline documentary --name "..."
//	montage project start ID
//	montage project status ID
//	montage project approve ID POSITION
//	montage pipeline list
//	montage pipeline wire SLUG
//	montage catalog list
//
// Флаг --json переключает вывод в машиночитаемый формат,
// --server задаёт адрес API (по умолчанию http://localhost:8080).
package cli
