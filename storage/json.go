package storage

import (
	"context"

	"github.com/bytedance/sonic"
)

// GetJSON decodes the item stored under key into v. It reports false when the
// key does not exist.
func GetJSON(ctx context.Context, kv KV, key string, v any) (bool, error) {
	raw, ok, err := kv.GetItem(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := sonic.UnmarshalString(raw, v); err != nil {
		return true, err
	}
	return true, nil
}

// SetJSON stores v as JSON under key.
func SetJSON(ctx context.Context, kv KV, key string, v any) error {
	raw, err := sonic.MarshalString(v)
	if err != nil {
		return err
	}
	return kv.SetItem(ctx, key, raw)
}
