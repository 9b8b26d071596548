// Package wiring вычисляет соединения между узлами pipeline.
//
// Включает:
//   - plan.go   — построение набора соединений из деклараций входов/выходов
//   - engine.go — commit: замена соединений pipeline в хранилище
//   - errors.go — ошибки валидации
//
// Проводка выполняется на этапе авторинга pipeline, не при каждом
// запуске проекта. Для каждого входа узла выбирается ближайший
// предшествующий производитель нужного ключа — позже размещённый
// производитель того же ключа перекрывает более ранние для всех
// узлов ниже по потоку.
package wiring
