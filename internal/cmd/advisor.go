package cmd

import (
	"context"
	"strings"

	"github.com/zenhq/zen/internal/claude"
	"github.com/zenhq/zen/internal/core"
	"github.com/zenhq/zen/internal/models"
)

// recoveryAdvisor implements core.RecoveryAdvisor with a headless Claude
// invocation: the agent's recent output and retry history go in, one of the
// four recovery actions comes back. HealthMonitor treats any error here as
// a cue to fall back to its keyword heuristic, and degrades unusable
// decisions (unknown actions, decompose without subtasks) to a restart
// itself, so this never has to be clever about failure.
type recoveryAdvisor struct {
	svc *claude.Service
}

var _ core.RecoveryAdvisor = (*recoveryAdvisor)(nil)

func newRecoveryAdvisor(inv *claude.Invoker) *recoveryAdvisor {
	return &recoveryAdvisor{svc: claude.NewServiceWithInvoker(inv)}
}

// AdviseRecovery classifies the unhealthy agent described by req.
func (a *recoveryAdvisor) AdviseRecovery(ctx context.Context, req models.RecoveryRequest) (models.RecoveryDecision, error) {
	var decision models.RecoveryDecision
	err := a.svc.InvokeAndParse(ctx,
		models.BuildRecoveryPrompt(req), models.RecoveryDecisionSchema(), &decision)
	if err != nil {
		return models.RecoveryDecision{}, err
	}
	decision.Action = strings.ToLower(strings.TrimSpace(decision.Action))
	return decision, nil
}
