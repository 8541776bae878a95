// Package agent implements the decision collaborator: for each inbound
// message it gathers conversation history and CRM context, then runs a
// bounded tool-calling loop against the chat model until the model
// produces a final reply.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openaisdk "github.com/openai/openai-go"
	"github.com/rs/zerolog/log"

	contractx "github.com/relayne/crmagent/agent/contract"
	"github.com/relayne/crmagent/pkg/llm"
	phonex "github.com/relayne/crmagent/pkg/phone"
)

// maxToolRounds bounds the tool loop so a confused model cannot spin the
// CRM indefinitely.
const maxToolRounds = 6

const historyLimit = 5

type Responder struct {
	chat      func(ctx context.Context, params openaisdk.ChatCompletionNewParams) (*openaisdk.ChatCompletion, error)
	crm       contractx.CRM
	memory    contractx.Memory
	knowledge contractx.Knowledge

	model       string
	temperature float64
	maxTokens   int64

	now func() time.Time
}

func NewResponder(
	client *openaisdk.Client,
	cfg llm.Config,
	crm contractx.CRM,
	memory contractx.Memory,
	knowledge contractx.Knowledge,
) (*Responder, error) {
	if client == nil {
		return nil, errors.New("agent: openai client is required")
	}
	if crm == nil {
		return nil, errors.New("agent: crm client is required")
	}
	if memory == nil {
		memory = noopMemory{}
	}
	if knowledge == nil {
		knowledge = noopKnowledge{}
	}

	return &Responder{
		chat: func(ctx context.Context, params openaisdk.ChatCompletionNewParams) (*openaisdk.ChatCompletion, error) {
			return client.Chat.Completions.New(ctx, params)
		},
		crm:         crm,
		memory:      memory,
		knowledge:   knowledge,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxCompletionTokens,
		now:         time.Now,
	}, nil
}

// Respond produces the reply for one message. It may issue several
// sequential CRM calls through the tool loop before answering; callers on
// the webhook path run it off the request goroutine.
func (r *Responder) Respond(ctx context.Context, sessionID, message string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", contractx.ErrEmptyMessage
	}

	r.memory.Append(ctx, sessionID, "user", message)

	messages := []openaisdk.ChatCompletionMessageParamUnion{
		openaisdk.SystemMessage(r.systemPrompt(ctx, sessionID)),
		openaisdk.UserMessage(message),
	}
	tools := toolDefs()

	for round := 0; round < maxToolRounds; round++ {
		completion, err := r.chat(ctx, openaisdk.ChatCompletionNewParams{
			Model:               r.model,
			Messages:            messages,
			Tools:               tools,
			Temperature:         openaisdk.Float(r.temperature),
			MaxCompletionTokens: openaisdk.Int(r.maxTokens),
		})
		if err != nil {
			return "", fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
		}
		if len(completion.Choices) == 0 {
			return "", fmt.Errorf("%w: empty choices", contractx.ErrModelInvoke)
		}

		choice := completion.Choices[0]
		if len(choice.Message.ToolCalls) == 0 {
			reply := strings.TrimSpace(choice.Message.Content)
			r.memory.Append(ctx, sessionID, "assistant", reply)
			return reply, nil
		}

		messages = append(messages, choice.Message.ToParam())
		for _, call := range choice.Message.ToolCalls {
			result, err := r.execTool(ctx, call.Function.Name, call.Function.Arguments)
			if err != nil {
				result = "Tool call failed: " + err.Error()
			}
			log.Debug().Str("tool", call.Function.Name).Str("session", phonex.Mask(sessionID)).
				Msg("tool executed")
			messages = append(messages, openaisdk.ToolMessage(result, call.ID))
		}
	}

	return "", fmt.Errorf("%w: tool loop exceeded %d rounds", contractx.ErrModelInvoke, maxToolRounds)
}

// systemPrompt assembles the instruction block: persona rules, current
// time, CRM context for a known caller, and recent history.
func (r *Responder) systemPrompt(ctx context.Context, sessionID string) string {
	var b strings.Builder
	b.WriteString("You are the sales and support assistant of the company, chatting over WhatsApp.\n")
	b.WriteString("Rules: keep replies to two or three short lines; never mention internal systems; ")
	b.WriteString("never invent meetings or orders; only book when the customer explicitly asks; ")
	b.WriteString("the calendar works in UTC.\n\n")

	fmt.Fprintf(&b, "Current UTC time: %s\n\n", r.now().UTC().Format("2006-01-02 15:04:05 (Monday)"))

	// The session id is the caller's number on the WhatsApp path; on the
	// web chat path it is an opaque id and the lookup simply finds nobody.
	if contact, err := r.crm.ResolveContact(ctx, sessionID); err == nil && contact != nil {
		fmt.Fprintf(&b, "CRM context: this customer is already known as %s", contact.Name)
		if contact.Email != "" {
			fmt.Fprintf(&b, " (email %s)", contact.Email)
		}
		b.WriteString(". Greet them by name and do not ask again for details you already have.\n\n")
	}

	b.WriteString(r.memory.Recent(ctx, sessionID, historyLimit))
	return b.String()
}

type noopMemory struct{}

func (noopMemory) Append(context.Context, string, string, string) {}
func (noopMemory) Recent(context.Context, string, int) string     { return "" }

type noopKnowledge struct{}

func (noopKnowledge) Search(context.Context, string) string {
	return "No knowledge base is configured."
}
