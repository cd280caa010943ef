package main

import (
	"context"

	"bussola-backend/cmd/siafe-export/commands"
	"bussola-backend/lib/telemetry"
)

func main() {
	telemetry.SetupFromEnv(context.Background(), "siafe-export")
	telemetry.InitSlog(true)
	commands.ExecuteContext(context.Background())
}
