package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/bytedance/sonic"
)

// Table string properties hold at most 32K UTF-16 code units; chunks are
// sized in runes so a chunk of four byte runes still fits.
const tableChunkRunes = 16000

const (
	tableChunksProp  = "Chunks"
	tableValuePrefix = "Value"
	tableMaxChunks   = 250
	edmInt32         = "Edm.Int32"
	odataTypeSuffix  = "@odata.type"
)

// TableKV stores items as entities of an Azure Storage table, one row per key
// in a single partition.
type TableKV struct {
	client    *aztables.Client
	partition string
}

// NewTableKV connects to table using an account connection string.
func NewTableKV(connStr, table, partition string) (*TableKV, error) {
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
	return &TableKV{client: svc.NewClient(table), partition: partition}, nil
}

func (t *TableKV) GetItem(ctx context.Context, key string) (string, bool, error) {
	resp, err := t.client.GetEntity(ctx, t.partition, key, nil)
	if err != nil {
		if isNotFound(err) {
			return "", false, nil
		}
		return "", false, err
	}
	v, err := decodeTableValue(resp.Value)
	if err != nil {
		return "", false, fmt.Errorf("decode %s: %w", key, err)
	}
	return v, true, nil
}

func (t *TableKV) SetItem(ctx context.Context, key, value string) error {
	ent, err := encodeTableValue(t.partition, key, value)
	if err != nil {
		return err
	}
	_, err = t.client.UpsertEntity(ctx, ent, &aztables.UpsertEntityOptions{UpdateMode: aztables.UpdateModeReplace})
	return err
}

func (t *TableKV) RemoveItem(ctx context.Context, key string) error {
	_, err := t.client.DeleteEntity(ctx, t.partition, key, nil)
	if err != nil && !isNotFound(err) {
		return err
	}
	return nil
}

func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound
}

func splitRunes(s string, n int) []string {
	if s == "" {
		return []string{""}
	}
	var out []string
	for len(s) > 0 {
		i, count := 0, 0
		for i < len(s) && count < n {
			_, size := utf8.DecodeRuneInString(s[i:])
			i += size
			count++
		}
		out = append(out, s[:i])
		s = s[i:]
	}
	return out
}

func encodeTableValue(partition, key, value string) ([]byte, error) {
	chunks := splitRunes(value, tableChunkRunes)
	if len(chunks) > tableMaxChunks {
		return nil, fmt.Errorf("value for %s too large: %d chunks", key, len(chunks))
	}
	ent := map[string]any{
		"PartitionKey":                    partition,
		"RowKey":                          key,
		tableChunksProp:                   len(chunks),
		tableChunksProp + odataTypeSuffix: edmInt32,
	}
	for i, c := range chunks {
		ent[tableValuePrefix+strconv.Itoa(i)] = c
	}
	return sonic.Marshal(ent)
}

func decodeTableValue(data []byte) (string, error) {
	var ent map[string]any
	if err := sonic.Unmarshal(data, &ent); err != nil {
		return "", err
	}
	raw, ok := ent[tableChunksProp]
	if !ok {
		return "", errors.New("missing chunk count")
	}
	n, ok := raw.(float64)
	if !ok || n < 1 || n > tableMaxChunks {
		return "", fmt.Errorf("invalid chunk count %v", raw)
	}
	var b strings.Builder
	for i := 0; i < int(n); i++ {
		part, ok := ent[tableValuePrefix+strconv.Itoa(i)].(string)
		if !ok {
			return "", fmt.Errorf("missing chunk %d", i)
		}
		b.WriteString(part)
	}
	return b.String(), nil
}
