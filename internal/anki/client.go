package anki

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/revisehq/cardsmith/internal/domain"
)

const (
	// DefaultURL is the standard AnkiConnect listen address.
	DefaultURL = "http://localhost:8765"

	// apiVersion is the AnkiConnect protocol version.
	apiVersion = 6

	// cardModel is the preferred note model; AddCard falls back to Basic
	// when it is not installed.
	cardModel = "CLAT GK Card"
)

// Sink delivers generated cards to the flashcard store.
type Sink interface {
	Ping(ctx context.Context) error
	ImportCards(ctx context.Context, cards []domain.Card) (imported int, failed int, err error)
}

// Client talks the AnkiConnect JSON-RPC protocol.
type Client struct {
	url  string
	http *http.Client
}

func NewClient(url string) *Client {
	if url == "" {
		url = DefaultURL
	}
	return &Client{
		url:  url,
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

type request struct {
	Action  string `json:"action"`
	Version int    `json:"version"`
	Params  any    `json:"params"`
}

type response struct {
	Result json.RawMessage `json:"result"`
	Error  *string         `json:"error"`
}

func (c *Client) call(ctx context.Context, action string, params any, result any) error {
	if params == nil {
		params = map[string]any{}
	}
	body, err := json.Marshal(request{Action: action, Version: apiVersion, Params: params})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrImportSinkFailed, action, err)
	}
	defer resp.Body.Close()

	var envelope response
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("%w: %s: decode response: %v", domain.ErrImportSinkFailed, action, err)
	}
	if envelope.Error != nil && *envelope.Error != "" {
		return fmt.Errorf("%w: %s: %s", domain.ErrImportSinkFailed, action, *envelope.Error)
	}
	if result != nil && envelope.Result != nil {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("%w: %s: decode result: %v", domain.ErrImportSinkFailed, action, err)
		}
	}
	return nil
}

// Ping verifies AnkiConnect is reachable.
func (c *Client) Ping(ctx context.Context) error {
	var version int
	return c.call(ctx, "version", nil, &version)
}

// EnsureDecks creates any decks that do not exist yet. createDeck is
// idempotent on the Anki side.
func (c *Client) EnsureDecks(ctx context.Context, decks []string) error {
	for _, deck := range decks {
		if err := c.call(ctx, "createDeck", map[string]any{"deck": deck}, nil); err != nil {
			return err
		}
	}
	return nil
}

type note struct {
	DeckName  string            `json:"deckName"`
	ModelName string            `json:"modelName"`
	Fields    map[string]string `json:"fields"`
	Tags      []string          `json:"tags"`
	Options   noteOptions       `json:"options"`
}

type noteOptions struct {
	AllowDuplicate bool `json:"allowDuplicate"`
}

// AddCard adds a single note and returns its id. When the preferred model is
// not installed the card is retried with the Basic model.
func (c *Client) AddCard(ctx context.Context, card domain.Card) (int64, error) {
	n := note{
		DeckName:  card.Deck,
		ModelName: cardModel,
		Fields:    map[string]string{"Front": card.Front, "Back": card.Back},
		Tags:      card.Tags,
		Options:   noteOptions{AllowDuplicate: true},
	}

	var id int64
	err := c.call(ctx, "addNote", map[string]any{"note": n}, &id)
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "model was not found") {
		n.ModelName = "Basic"
		err = c.call(ctx, "addNote", map[string]any{"note": n}, &id)
	}
	return id, err
}

// ImportCards ensures the target decks exist and adds every card. Individual
// card failures are counted, not fatal; the pipeline treats a partially
// imported batch as delivered and reports the failure count.
func (c *Client) ImportCards(ctx context.Context, cards []domain.Card) (int, int, error) {
	if len(cards) == 0 {
		return 0, 0, nil
	}

	seen := map[string]bool{}
	var decks []string
	for _, card := range cards {
		if !seen[card.Deck] {
			seen[card.Deck] = true
			decks = append(decks, card.Deck)
		}
	}
	if err := c.EnsureDecks(ctx, decks); err != nil {
		return 0, 0, err
	}

	imported, failed := 0, 0
	for _, card := range cards {
		if _, err := c.AddCard(ctx, card); err != nil {
			failed++
			continue
		}
		imported++
	}
	return imported, failed, nil
}
