package banner

import (
	"fmt"

	"pulserelay/pkg/config"
)

const banner = `
██████╗ ██╗   ██╗██╗     ███████╗███████╗    ██████╗ ███████╗██╗      █████╗ ██╗   ██╗
██╔══██╗██║   ██║██║     ██╔════╝██╔════╝    ██╔══██╗██╔════╝██║     ██╔══██╗╚██╗ ██╔╝
██████╔╝██║   ██║██║     ███████╗█████╗      ██████╔╝█████╗  ██║     ███████║ ╚████╔╝
██╔═══╝ ██║   ██║██║     ╚════██║██╔══╝      ██╔══██╗██╔══╝  ██║     ██╔══██║  ╚██╔╝
██║     ╚██████╔╝███████╗███████║███████╗    ██║  ██║███████╗███████╗██║  ██║   ██║
╚═╝      ╚═════╝ ╚══════╝╚══════╝╚══════╝    ╚═╝  ╚═╝╚══════╝╚══════╝╚═╝  ╚═╝   ╚═╝
`

// PrintWithEff prints the banner using an EffectiveConfigResult which
// provides the resolved config, addr, dbpath and source.
func PrintWithEff(eff config.EffectiveConfigResult, version string) {
	addr := eff.Addr
	if addr == "" && eff.Config != nil {
		addr = eff.Config.Addr()
	}
	dbPath := eff.DBPath
	if dbPath == "" && eff.Config != nil {
		dbPath = eff.Config.Storage.DBPath
	}
	src := eff.Source
	if src == "" {
		src = "flags"
	}

	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:   %s\n", addr)
	fmt.Printf("DB Path:  %s\n", dbPath)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	fmt.Printf("Config: %s\n", src)

	fmt.Println("\n== Endpoints ==================================================")
	fmt.Println("POST   /v1/requests - Submit an AI request (JSON: request_type, prompt, context)")
	fmt.Println("GET    /v1/requests/pending - List pending requests, newest first")
	fmt.Println("GET    /v1/requests/{id}/response?timeout=<dur> - Await the correlated response")
	fmt.Println("DELETE /v1/requests/{id} - Cancel an in-flight request")
	fmt.Println("POST   /v1/admin/sweep - Run an expiration sweep now")

	fmt.Println("\n== Examples ===================================================")
	fmt.Println("curl -X POST 'http://<host>:<port>/v1/requests' -d '{\"request_type\":\"general_query\",\"prompt\":\"why is latency high?\"}'")
	fmt.Println("curl 'http://<host>:<port>/v1/requests/<id>/response?timeout=30s'")

	fmt.Println("\n== Production? =================================================")
	ck := 0
	ak := 0
	if eff.Config != nil {
		ck = len(eff.Config.Security.APIKeys.Client)
		ak = len(eff.Config.Security.APIKeys.Admin)
	}
	if ck > 0 {
		fmt.Printf("- Client API keys: OK (%d)\n", ck)
	} else {
		fmt.Println("- Client API keys: MISSING (required for client access)")
	}
	if ak > 0 {
		fmt.Printf("- Admin API keys: OK (%d)\n", ak)
	} else {
		fmt.Println("- Admin API keys: MISSING (required for admin tooling)")
	}

	tlsOK := eff.Config != nil && eff.Config.Server.TLS.CertFile != "" && eff.Config.Server.TLS.KeyFile != ""
	if tlsOK {
		fmt.Println("- TLS: configured")
	} else {
		fmt.Println("- TLS: unconfigured")
	}

	if eff.DBPath != "" {
		fmt.Printf("- DB Path: %s\n", eff.DBPath)
	} else {
		fmt.Println("- DB Path: not set (use --db or PULSERELAY_DB_PATH)")
	}

	if eff.Config != nil && eff.Config.Sweeper.Enabled {
		fmt.Printf("- Sweeper: enabled (%s)\n", eff.Config.Sweeper.Cron)
	} else {
		fmt.Println("- Sweeper: disabled (expired requests will accumulate)")
	}
}
