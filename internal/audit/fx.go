package audit

import (
	"github.com/smallbiznis/fieldops/internal/audit/repository"
	"github.com/smallbiznis/fieldops/internal/audit/service"
	"go.uber.org/fx"
)

// Module provides the audit trail that invoice, work order and progress
// writes record into inside their own transactions.
var Module = fx.Module("audit",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
