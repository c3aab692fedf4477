package recommend

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
	"shieldflow/internal/storage"
)

// Wire types of the generateContent REST call.

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type schema struct {
	Type        string            `json:"type"`
	Description string            `json:"description,omitempty"`
	Properties  map[string]schema `json:"properties,omitempty"`
	Required    []string          `json:"required,omitempty"`
}

type generationConfig struct {
	ResponseMimeType string  `json:"responseMimeType"`
	ResponseSchema   *schema `json:"responseSchema,omitempty"`
}

type generateRequest struct {
	SystemInstruction *content         `json:"systemInstruction,omitempty"`
	Contents          []content        `json:"contents"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

var answerSchema = &schema{
	Type: "OBJECT",
	Properties: map[string]schema{
		"recommendedServerId": {Type: "STRING"},
		"reason":              {Type: "STRING", Description: "Short explanation for the user"},
	},
	Required: []string{"recommendedServerId", "reason"},
}

// catalogEntry is what the model sees of each server.
type catalogEntry struct {
	ID       string   `json:"id"`
	Country  string   `json:"country"`
	Features []string `json:"features"`
}

func (c *Client) buildRequest(ctx context.Context, query string) generateRequest {
	return generateRequest{
		SystemInstruction: &content{Parts: []part{{Text: c.systemInstruction(ctx)}}},
		Contents:          []content{{Role: "user", Parts: []part{{Text: query}}}},
		GenerationConfig: generationConfig{
			ResponseMimeType: "application/json",
			ResponseSchema:   answerSchema,
		},
	}
}

func (c *Client) systemInstruction(ctx context.Context) string {
	entries := []catalogEntry{}
	if c.servers != nil {
		servers, err := c.servers.GetAllServers(ctx, storage.ServerFilter{})
		if err != nil {
			c.logger.Warn("failed to list servers for prompt", zap.Error(err))
		}
		for _, s := range servers {
			entries = append(entries, catalogEntry{ID: s.ID, Country: s.Country, Features: s.Features})
		}
	}
	catalog, _ := json.Marshal(entries)

	return fmt.Sprintf(`You are an expert VPN routing assistant.
You have access to the following server list: %s.
Based on the user's intent (e.g., streaming Netflix, gaming, privacy), recommend the single best server ID.
If the intent is unclear, recommend '%s' by default.`, catalog, c.config.DefaultServerID)
}
