package providers

import (
	"github.com/smallbiznis/boxoffice/internal/providers/email"
	"github.com/smallbiznis/boxoffice/internal/providers/pdf"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	pdf.Module,
)
