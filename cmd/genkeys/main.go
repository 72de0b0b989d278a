package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"osaccount/pkg/crypto"
	"osaccount/pkg/middleware"

	"github.com/spf13/pflag"
)

func main() {
	// 解析命令行参数
	var (
		keyDir      = pflag.StringP("dir", "d", "config/keys", "密钥存储目录")
		callerUID   = pflag.Int("caller-uid", -1, "为该UID签发调用方令牌，负数表示不签发")
		permissions = pflag.StringSlice("permissions", nil, "调用方令牌携带的权限")
		ttl         = pflag.Duration("ttl", 24*time.Hour, "调用方令牌有效期")
	)
	pflag.Parse()

	// 创建密钥目录
	if err := os.MkdirAll(*keyDir, 0700); err != nil {
		log.Fatalf("Failed to create key directory: %v", err)
	}

	keys := []struct {
		file  string
		block string
	}{
		{"template.key", crypto.TemplateKeyBlock},
		{"token.key", crypto.TokenSecretBlock},
		{"caller.key", crypto.CallerSecretBlock},
	}
	for _, k := range keys {
		path := filepath.Join(*keyDir, k.file)
		if _, err := os.Stat(path); err == nil {
			log.Printf("Key exists, skipped: %s", path)
			continue
		}
		if err := crypto.GenerateKey(path, k.block); err != nil {
			log.Fatalf("Failed to generate %s: %v", k.file, err)
		}
		log.Printf("Generated %s", path)
	}

	if *callerUID < 0 {
		return
	}

	secret, err := crypto.LoadKey(filepath.Join(*keyDir, "caller.key"), crypto.CallerSecretBlock)
	if err != nil {
		log.Fatalf("Failed to load caller key: %v", err)
	}
	token, err := middleware.IssueCallerToken(secret, *callerUID, *permissions, *ttl)
	if err != nil {
		log.Fatalf("Failed to issue caller token: %v", err)
	}
	fmt.Println(token)
}
