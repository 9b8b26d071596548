package steps

import (
	"context"
)

// ExecutorManual — имя исполнителя ручного шага.
const ExecutorManual = "manual"

// ManualExecutor — шаг, выполняемый человеком вне системы
// (озвучка в студии, ручной монтаж, выбор материала).
//
// Исполнитель ничего не делает: он прокидывает входы в выход как есть,
// а узел с этим исполнителем обычно помечен как чекпоинт. Проект
// останавливается в REVIEW, оператор выполняет работу и прикладывает
// результат через approve с payload'ом.
type ManualExecutor struct{}

// NewManualExecutor создаёт ManualExecutor.
func NewManualExecutor() *ManualExecutor {
	return &ManualExecutor{}
}

// Name возвращает имя исполнителя.
func (e *ManualExecutor) Name() string {
	return ExecutorManual
}

// Execute прокидывает входы в выход.
func (e *ManualExecutor) Execute(ctx context.Context, req *Request) (*Response, error) {
	output := make(map[string]any, len(req.Inputs))
	for key, value := range req.Inputs {
		output[key] = value
	}
	return NewResponse(output), nil
}
