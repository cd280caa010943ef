package siafe

import (
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("bussola.lib.siafe")
