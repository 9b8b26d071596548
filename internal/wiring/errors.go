package wiring

import "errors"

// Ошибки построения плана проводки.
var (
	// ErrNoNodes — pipeline не содержит узлов.
	ErrNoNodes = errors.New("pipeline has no nodes")

	// ErrMissingDefinition — узел ссылается на отсутствующее определение шага.
	ErrMissingDefinition = errors.New("node has no step definition")

	// ErrDuplicatePosition — несколько узлов с одинаковой позицией.
	// Позиции — тотальный порядок, дубликаты ломают выбор ближайшего
	// производителя и порядок выполнения.
	ErrDuplicatePosition = errors.New("duplicate node position")
)
