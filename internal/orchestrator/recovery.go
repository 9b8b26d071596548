package orchestrator

import (
	"context"
	"fmt"

	"github.com/shaiso/Montage/internal/domain"
)

// RecoverOrphans реконсилирует записи, осиротевшие после падения процесса.
//
// RUNNING в БД при старте — аномалия: живого исполнителя у такой записи
// нет, а побочные эффекты частично выполненного шага нельзя считать
// идемпотентными. Запись переводится в FAILED, проект блокируется и
// ждёт явного retry от оператора. Слепое возобновление запрещено.
//
// Вторым проходом реконсилируются проекты, застрявшие в RUNNING без
// RUNNING-шага: падение между узлами не оставляет осиротевшей записи,
// но без реконсиляции такая строка навсегда занимает слот в
// CountRunning. Выполненной работы у неё нет, поэтому проект
// переводится в PAUSED и возобновляется оператором.
func (o *Orchestrator) RecoverOrphans(ctx context.Context) error {
	if err := o.recoverOrphanedSteps(ctx); err != nil {
		return err
	}
	return o.recoverStrandedProjects(ctx)
}

// recoverOrphanedSteps переводит RUNNING-шаги без живого исполнителя
// в FAILED вместе с их проектами.
func (o *Orchestrator) recoverOrphanedSteps(ctx context.Context) error {
	orphans, err := o.stepRuns.ListRunning(ctx)
	if err != nil {
		return fmt.Errorf("list running step runs: %w", err)
	}

	if len(orphans) == 0 {
		return nil
	}

	o.logger.Warn("found orphaned running steps", "count", len(orphans))

	for i := range orphans {
		run := &orphans[i]

		if o.isActive(run.ProjectID) {
			continue
		}

		run.MarkFailed("orchestrator restarted during execution")
		if err := o.stepRuns.Update(ctx, run); err != nil {
			o.logger.Error("failed to reconcile orphaned step",
				"project_id", run.ProjectID,
				"position", run.Position,
				"error", err,
			)
			continue
		}

		project, err := o.projects.GetByID(ctx, run.ProjectID)
		if err != nil {
			o.logger.Error("failed to load project for orphaned step",
				"project_id", run.ProjectID,
				"error", err,
			)
			continue
		}
		project.MarkFailed()
		if err := o.projects.Update(ctx, project); err != nil {
			o.logger.Error("failed to persist project failure",
				"project_id", run.ProjectID,
				"error", err,
			)
			continue
		}

		o.audit(ctx, run.ProjectID, run.Position, domain.LogLevelError, auditSource,
			"step reconciled to FAILED after restart")

		o.logger.Warn("orphaned step reconciled",
			"project_id", run.ProjectID,
			"position", run.Position,
			"step", run.Name,
		)
	}

	return nil
}

// recoverStrandedProjects реконсилирует проекты, оставшиеся RUNNING
// без владельца. К этому моменту осиротевшие шаги уже переведены в
// FAILED, так что здесь остаются только падения между узлами.
func (o *Orchestrator) recoverStrandedProjects(ctx context.Context) error {
	stranded, err := o.projects.ListByStatus(ctx, domain.ProjectStatusRunning)
	if err != nil {
		return fmt.Errorf("list running projects: %w", err)
	}

	for i := range stranded {
		project := &stranded[i]

		if o.isActive(project.ID) {
			continue
		}

		runs, err := o.stepRuns.ListByProject(ctx, project.ID)
		if err != nil {
			o.logger.Error("failed to load steps for stranded project",
				"project_id", project.ID,
				"error", err,
			)
			continue
		}

		// Упавший шаг блокирует проект до явного retry/skip; без него
		// проект возобновим с первого нетерминального шага.
		blocked := false
		for j := range runs {
			if runs[j].Status == domain.StepStatusFailed {
				blocked = true
				break
			}
		}
		if blocked {
			project.MarkFailed()
		} else {
			project.MarkPaused()
		}

		if err := o.projects.Update(ctx, project); err != nil {
			o.logger.Error("failed to persist stranded project status",
				"project_id", project.ID,
				"error", err,
			)
			continue
		}

		o.audit(ctx, project.ID, 0, domain.LogLevelWarn, auditSource,
			"project reconciled to "+string(project.Status)+" after restart")

		o.logger.Warn("stranded project reconciled",
			"project_id", project.ID,
			"status", project.Status,
		)
	}

	return nil
}
