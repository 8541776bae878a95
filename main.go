package main

import (
	"github.com/rs/zerolog/log"

	agentx "github.com/relayne/crmagent/agent"
	configx "github.com/relayne/crmagent/pkg/config"
	llmx "github.com/relayne/crmagent/pkg/llm"
	_ "github.com/relayne/crmagent/pkg/logger/autoload"
	memoryx "github.com/relayne/crmagent/pkg/memory"
	odoox "github.com/relayne/crmagent/pkg/odoo"
	ragx "github.com/relayne/crmagent/pkg/rag"
	serverx "github.com/relayne/crmagent/pkg/server"
	whatsappx "github.com/relayne/crmagent/pkg/whatsapp"
)

func main() {
	odooCfg := configx.MustNew[odoox.Config]("ODOO")
	crm := odoox.MustNew(*odooCfg)

	llmCfg := configx.MustNew[llmx.Config]("OPENAI")
	llmClient := llmx.MustNew(*llmCfg)

	memoryCfg := configx.MustNew[memoryx.Config]("SUPABASE")
	store := memoryx.MustNew(*memoryCfg)

	knowledge, err := ragx.NewSearcher(store.DB(), llmClient, llmCfg.EmbeddingModel)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize knowledge base search")
	}

	responder, err := agentx.NewResponder(llmClient, *llmCfg, crm, store, knowledge)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize agent")
	}

	whatsappCfg := configx.MustNew[whatsappx.Config]("WHATSAPP")
	sender := whatsappx.MustNew(*whatsappCfg)

	serverCfg := configx.MustNew[serverx.Config]("SERVER")
	srv := serverx.New(*serverCfg, responder, sender, whatsappCfg.VerifyToken, whatsappCfg.AppSecret)
	if err := srv.ListenAndServe(); err != nil {
		log.Fatal().Err(err).Msg("http server stopped")
	}
}
