package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/bytedance/sonic"

	"github.com/123123eeqweq/omocrm/domain"
)

// boardRowKey is the single row kept in each project partition.
const boardRowKey = "board"

// AzureStore keeps boards in an Azure Table, one entity per project.
type AzureStore struct {
	service *aztables.ServiceClient
	table   *aztables.Client
	now     func() time.Time
}

// NewAzure creates an AzureStore from a storage connection string.
func NewAzure(connStr, table string) (*AzureStore, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute,
				RetryDelay:    time.Second,
				MaxRetryDelay: 15 * time.Second,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return &AzureStore{service: svc, table: svc.NewClient(table), now: time.Now}, nil
}

// Azure Table limits: a string property holds at most 64 KiB (32K UTF-16
// code units) and a whole entity at most 1 MiB.
const (
	azurePropertyUnits = 32 << 10
	azureEntityBytes   = 1 << 20
	// headroom for keys, timestamps and property names
	azureEntityReserve = 16 << 10
)

// EnsureTable creates the boards table when missing.
func (s *AzureStore) EnsureTable(ctx context.Context) error {
	if _, err := s.table.CreateTable(ctx, nil); err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.ErrorCode == string(aztables.TableAlreadyExists) {
			return nil
		}
		return failed("create boards table", err)
	}
	return nil
}

// Get loads the board entity of projectID.
func (s *AzureStore) Get(ctx context.Context, projectID string) (domain.Document, error) {
	resp, err := s.table.GetEntity(ctx, projectID, boardRowKey, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
			return domain.EmptyDocument(), nil
		}
		return domain.Document{}, failed("get board "+projectID, err)
	}
	doc, err := decodeBoardEntity(resp.Value)
	if err != nil {
		return domain.Document{}, failed("decode board "+projectID, err)
	}
	return doc, nil
}

// Upsert replaces the board entity of projectID. CreatedAt is carried over
// from the existing entity when there is one.
func (s *AzureStore) Upsert(ctx context.Context, projectID string, doc domain.Document) (domain.Document, error) {
	doc = doc.Normalize()
	now := s.now().UTC()
	created := now.Format(time.RFC3339Nano)
	if resp, err := s.table.GetEntity(ctx, projectID, boardRowKey, nil); err == nil {
		var prev map[string]any
		if sonic.Unmarshal(resp.Value, &prev) == nil {
			if v, ok := prev["CreatedAt"].(string); ok && v != "" {
				created = v
			}
		}
	}

	payload, err := encodeBoardEntity(projectID, doc, created, now)
	if errors.Is(err, ErrDocumentTooLarge) {
		return domain.Document{}, fmt.Errorf("upsert board %s: %w", projectID, err)
	}
	if err != nil {
		return domain.Document{}, failed("encode board "+projectID, err)
	}
	if _, err := s.table.UpsertEntity(ctx, payload, &aztables.UpsertEntityOptions{UpdateMode: aztables.UpdateModeReplace}); err != nil {
		return domain.Document{}, failed("upsert board "+projectID, err)
	}
	doc.UpdatedAt = now
	return doc, nil
}

// Ping checks that the table service answers.
func (s *AzureStore) Ping(ctx context.Context) error {
	if _, err := s.service.GetProperties(ctx, nil); err != nil {
		return failed("ping", err)
	}
	return nil
}

// Close is a no-op; the SDK clients hold no connections of their own.
func (s *AzureStore) Close() error { return nil }

// encodeBoardEntity stores each collection as Cards, Cards1, Cards2, ... so
// boards larger than one string property still fit in a single entity.
func encodeBoardEntity(projectID string, doc domain.Document, created string, updated time.Time) ([]byte, error) {
	cards := splitProperty(string(doc.Cards))
	steps := splitProperty(string(doc.Steps))
	if units := utf16Len(string(doc.Cards)) + utf16Len(string(doc.Steps)); 2*units > azureEntityBytes-azureEntityReserve {
		return nil, ErrDocumentTooLarge
	}

	ent := map[string]any{
		"PartitionKey": projectID,
		"RowKey":       boardRowKey,
		"CreatedAt":    created,
		"UpdatedAt":    updated.Format(time.RFC3339Nano),
	}
	for i, part := range cards {
		ent[chunkName("Cards", i)] = part
	}
	for i, part := range steps {
		ent[chunkName("Steps", i)] = part
	}
	return sonic.Marshal(ent)
}

func decodeBoardEntity(data []byte) (domain.Document, error) {
	var ent map[string]any
	if err := sonic.Unmarshal(data, &ent); err != nil {
		return domain.Document{}, err
	}
	doc := domain.Document{
		Cards: []byte(joinProperty(ent, "Cards")),
		Steps: []byte(joinProperty(ent, "Steps")),
	}
	if v, ok := ent["UpdatedAt"].(string); ok && v != "" {
		ts, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return domain.Document{}, err
		}
		doc.UpdatedAt = ts
	}
	return doc.Normalize(), nil
}

func chunkName(base string, i int) string {
	if i == 0 {
		return base
	}
	return base + strconv.Itoa(i)
}

// splitProperty cuts s on rune boundaries into parts of at most
// azurePropertyUnits UTF-16 code units.
func splitProperty(s string) []string {
	var parts []string
	start, units := 0, 0
	for i, r := range s {
		n := utf16.RuneLen(r)
		if n < 0 {
			n = 1
		}
		if units+n > azurePropertyUnits {
			parts = append(parts, s[start:i])
			start, units = i, 0
		}
		units += n
	}
	return append(parts, s[start:])
}

func joinProperty(ent map[string]any, base string) string {
	var sb strings.Builder
	for i := 0; ; i++ {
		part, ok := ent[chunkName(base, i)].(string)
		if !ok {
			return sb.String()
		}
		sb.WriteString(part)
	}
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		if l := utf16.RuneLen(r); l > 0 {
			n += l
		} else {
			n++
		}
	}
	return n
}
