package upstream

import (
	"fmt"

	"content-gateway/access/domain"
)

// buildBody monta o corpo JSON de cada endpoint a partir dos argumentos da operação.
// Aceita tanto os tipos dos métodos tipados quanto os valores de um JSON decodificado
// (string, []any), que é o que chega por Call.
func buildBody(op domain.Operation, args []any) (any, error) {
	switch op {
	case domain.OpGetPage:
		id, err := stringArg(op, args, 0)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"pageId":          id,
			"limit":           100,
			"cursor":          map[string]any{"stack": []any{}},
			"chunkNumber":     0,
			"verticalColumns": false,
		}, nil

	case domain.OpGetBlocks:
		ids, err := stringsArg(op, args, 0)
		if err != nil {
			return nil, err
		}
		reqs := make([]map[string]any, 0, len(ids))
		for _, id := range ids {
			reqs = append(reqs, map[string]any{
				"pointer": map[string]any{"table": "block", "id": id},
				"version": -1,
			})
		}
		return map[string]any{"requests": reqs}, nil

	case domain.OpGetUsers:
		ids, err := stringsArg(op, args, 0)
		if err != nil {
			return nil, err
		}
		reqs := make([]map[string]any, 0, len(ids))
		for _, id := range ids {
			reqs = append(reqs, map[string]any{"table": "notion_user", "id": id})
		}
		return map[string]any{"requests": reqs}, nil

	case domain.OpQueryCollection:
		collectionID, err := stringArg(op, args, 0)
		if err != nil {
			return nil, err
		}
		viewID, err := stringArg(op, args, 1)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"collection":     map[string]any{"id": collectionID},
			"collectionView": map[string]any{"id": viewID},
			"loader": map[string]any{
				"type":         "reducer",
				"reducers":     map[string]any{"collection_group_results": map[string]any{"type": "results", "limit": 999}},
				"searchQuery":  "",
				"userTimeZone": "UTC",
			},
		}, nil

	case domain.OpGetSignedFileURLs:
		reqs, err := signedArg(op, args, 0)
		if err != nil {
			return nil, err
		}
		urls := make([]map[string]any, 0, len(reqs))
		for _, r := range reqs {
			urls = append(urls, map[string]any{
				"permissionRecord": map[string]any{"table": "block", "id": r.BlockID},
				"url":              r.URL,
			})
		}
		return map[string]any{"urls": urls}, nil
	}

	return nil, &domain.Error{Kind: domain.KindUnknownOperation, Op: string(op), Err: fmt.Errorf("%s is not an upstream operation", op)}
}

func badArgs(op domain.Operation, format string, a ...any) error {
	return &domain.Error{Kind: domain.KindInvalidConfiguration, Op: string(op), Err: fmt.Errorf(format, a...)}
}

func stringArg(op domain.Operation, args []any, i int) (string, error) {
	if len(args) <= i {
		return "", badArgs(op, "missing argument %d", i)
	}
	s, ok := args[i].(string)
	if !ok || s == "" {
		return "", badArgs(op, "argument %d must be a non-empty string, got %T", i, args[i])
	}
	return s, nil
}

func stringsArg(op domain.Operation, args []any, i int) ([]string, error) {
	if len(args) <= i {
		return nil, badArgs(op, "missing argument %d", i)
	}
	switch v := args[i].(type) {
	case []string:
		return v, nil
	case string:
		return []string{v}, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, x := range v {
			s, ok := x.(string)
			if !ok {
				return nil, badArgs(op, "argument %d must hold strings, got %T", i, x)
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, badArgs(op, "argument %d must be a list of ids, got %T", i, args[i])
}

func signedArg(op domain.Operation, args []any, i int) ([]SignedURLRequest, error) {
	if len(args) <= i {
		return nil, badArgs(op, "missing argument %d", i)
	}
	switch v := args[i].(type) {
	case []SignedURLRequest:
		return v, nil
	case []any:
		out := make([]SignedURLRequest, 0, len(v))
		for _, x := range v {
			m, ok := x.(map[string]any)
			if !ok {
				return nil, badArgs(op, "argument %d must hold objects, got %T", i, x)
			}
			blockID, _ := m["blockId"].(string)
			u, _ := m["url"].(string)
			out = append(out, SignedURLRequest{BlockID: blockID, URL: u})
		}
		return out, nil
	}
	return nil, badArgs(op, "argument %d must be a list of signed url requests, got %T", i, args[i])
}
