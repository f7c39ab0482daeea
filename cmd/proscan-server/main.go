package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"proscan-server-go/internal/bootstrap"
	"proscan-server-go/internal/domain/auth"
	"proscan-server-go/internal/platform/config"
)

var version = "dev"

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to the YAML configuration file")
	issueToken := flag.String("issue-token", "", "print a bearer token for the named operator and exit")
	flag.Parse()

	if *issueToken != "" {
		if err := printToken(*configPath, *issueToken); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "issue token: %v\n", err)
			os.Exit(1)
		}
		return
	}

	fmt.Printf("[%s] [INFO] [BOOT] starting proscan-server %s\n", time.Now().Format("2006-01-02 15:04:05.000"), version)
	if err := bootstrap.Run(context.Background(), bootstrap.Options{
		ConfigPath: *configPath,
		Version:    version,
	}); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "proscan-server failed: %v\n", err)
		os.Exit(1)
	}
}

func printToken(configPath, operator string) error {
	res, err := config.NewLoader(configPath).Load()
	if err != nil {
		return err
	}
	token, err := auth.NewAuthToken(res.Config.Server.TokenSecret).GenerateToken(operator)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
