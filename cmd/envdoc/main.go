package main

import (
	"fmt"
	"os"
	
	"gateway/internal/config"
)

func main() {
	fmt.Println("# Gateway Environment Variables")
	fmt.Println()
	fmt.Println("The gateway supports configuration via environment variables.")
	fmt.Println("Environment variables override values from the configuration file.")
	fmt.Println()
	fmt.Println("## Available Environment Variables")
	fmt.Println()
	
	cfg := &config.Config{}
	examples := config.EnvExample(cfg)
	
	for _, example := range examples {
		fmt.Printf("- `%s`\n", example)
	}
	
	fmt.Println()
	fmt.Println("## Examples")
	fmt.Println()
	fmt.Println("```bash")
	fmt.Println("# Override the HTTP listener port")
	fmt.Println("export GATEWAY_HTTP_PORT=9090")
	fmt.Println()
	fmt.Println("# Enable HTTPS")
	fmt.Println("export GATEWAY_HTTPS_ENABLED=true")
	fmt.Println("export GATEWAY_HTTPS_PORT=8443")
	fmt.Println("export GATEWAY_TLS_CERTPATH=/etc/gateway/tls.crt")
	fmt.Println("export GATEWAY_TLS_KEYPATH=/etc/gateway/tls.key")
	fmt.Println()
	fmt.Println("# Switch the label namespace and config-source priority")
	fmt.Println("export GATEWAY_LABELS_PREFIX=rproxy.")
	fmt.Println("export GATEWAY_JSONCONFIG_PRIORITY=label")
	fmt.Println()
	fmt.Println("# Run gateway with env vars")
	fmt.Println("./gateway -config gateway.yaml")
	fmt.Println("```")
	
	os.Exit(0)
}