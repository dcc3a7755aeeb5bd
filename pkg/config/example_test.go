package config_test

import (
	"fmt"

	"github.com/wonny/marketlens/backend/pkg/config"
)

// Example demonstrates how to use the config package
func Example() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		return
	}

	fmt.Printf("Server running on port: %s\n", cfg.Port)
	fmt.Printf("Producer: %s\n", cfg.Producer.BaseURL)
	fmt.Printf("Signals stream: %s\n", cfg.StreamURL(cfg.Stream.SignalsPath))
}
