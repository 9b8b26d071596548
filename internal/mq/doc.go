// Package mq — работа с RabbitMQ.
//
// Включает:
//   - connection.go — соединение с автоматическим reconnect
//   - topology.go   — декларация exchanges, queues и bindings
//   - publisher.go  — публикация событий жизненного цикла проектов
//   - consumer.go   — потребление сообщений с ack/nack
//
// События жизненного цикла (project.started, step.failed, ...)
// публикуются orchestrator'ом и потребляются notifier'ом. Выполнение
// проектов от очереди не зависит: шина только информирует.
package mq
