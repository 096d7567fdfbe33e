package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	authinfra "deal-sniper/internal/infrastructure/auth"
	"deal-sniper/internal/infrastructure/config"
)

// token 產生營運端 API 使用的 JWT（開發用）。
func main() {
	cfgPath := flag.String("config", "config.yaml", "path to config file")
	subject := flag.String("sub", "operator", "token subject")
	role := flag.String("role", authinfra.RoleOperator, "operator or admin")
	ttl := flag.Duration("ttl", 0, "token lifetime (default from config)")
	flag.Parse()

	cfg, err := config.LoadFromFile(*cfgPath)
	if err != nil {
		log.Fatalf("讀取組態失敗: %v", err)
	}
	if *ttl > 0 {
		cfg.Auth.TokenTTL = *ttl
	}

	token, exp, err := authinfra.NewJWTIssuer(cfg.Auth.Secret, cfg.Auth.TokenTTL).Issue(*subject, *role)
	if err != nil {
		log.Fatalf("產生 token 失敗: %v", err)
	}
	fmt.Println(token)
	log.Printf("expires at %s", exp.Format(time.RFC3339))
}
