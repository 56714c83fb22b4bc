package main

import (
	"content-gateway/platform/config"

	"github.com/spf13/cobra"
)

var (
	flagTokenStore  string
	flagTokenPath   string
	flagConcurrency int
	flagTenant      string
	flagOutDir      string
)

var rootCmd = &cobra.Command{
	Use:   "prerender",
	Short: "Fetch content for static builds under the shared upstream rate budget",
	Long: `prerender busca conteúdo da API upstream em modo bulk.

Várias instâncias (workers de build) podem rodar ao mesmo tempo: todas passam pelo
mesmo token de rate limit (arquivo, Redis ou SQLite), então o intervalo mínimo entre
chamadas vale para a frota inteira.

A configuração vem das mesmas variáveis de ambiente do gateway (e de CONFIG_FILE);
as flags abaixo sobrescrevem as correspondentes.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagTokenStore, "token-store", "", "rate token backend: file, redis, sqlite or memory (default from TOKEN_STORE)")
	rootCmd.PersistentFlags().StringVar(&flagTokenPath, "token-path", "", "path of the file/sqlite rate token (default from TOKEN_PATH)")
	rootCmd.PersistentFlags().IntVar(&flagConcurrency, "concurrency", 4, "parallel fetches inside this process")
	rootCmd.PersistentFlags().StringVar(&flagTenant, "tenant", "", "tenant id sent as X-Tenant-ID in multi-tenant mode")
	rootCmd.PersistentFlags().StringVar(&flagOutDir, "out", "", "directory to write <id>.json files (stdout summary only when empty)")
}

// loadConfig lê a configuração e aplica as flags.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if flagTokenStore != "" {
		cfg.TokenStore = flagTokenStore
	}
	if flagTokenPath != "" {
		cfg.TokenPath = flagTokenPath
	}
	cfg.BulkMode = true
	return cfg, cfg.Validate()
}
