package edx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ccxcon/ccxcon/internal/ezhttp"
	"github.com/ccxcon/ccxcon/server/database"
)

const requestedBlockFields = "children,display_name,id,type,visible_to_staff_only"

type Block struct {
	ID                 string   `json:"id"`
	Type               string   `json:"type"`
	DisplayName        string   `json:"display_name"`
	Children           []string `json:"children"`
	VisibleToStaffOnly bool     `json:"visible_to_staff_only"`
}

// BlockTree is the flattened course structure keyed by block id.
type BlockTree struct {
	Root   string           `json:"root"`
	Blocks map[string]Block `json:"blocks"`
}

// BlocksResponse carries the upstream status next to the decoded tree.
// Tree is only set for 2xx responses.
type BlocksResponse struct {
	StatusCode int
	Tree       *BlockTree
}

func (r BlocksResponse) OK() bool {
	return r.StatusCode >= http.StatusOK && r.StatusCode < http.StatusMultipleChoices
}

// FetchBlocks requests the full block tree of a course.
// Only transport and decoding failures are returned as errors, non-2xx responses are
// handed back so callers can decide how to retry.
func (c *Client) FetchBlocks(ctx context.Context, instance *database.BackingInstance, courseID string, accessToken string) (*BlocksResponse, error) {
	ctx, span := c.tracer.Start(ctx, "edx.FetchBlocks")
	defer span.End()
	span.SetAttributes(attribute.String("instance", instance.InstanceURL), attribute.String("course_id", courseID))

	query := url.Values{}
	query.Set("depth", "all")
	query.Set("username", instance.Username)
	query.Set("course_id", courseID)
	query.Set("requested_fields", requestedBlockFields)

	rq, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(instance.InstanceURL, "/")+"/api/courses/v1/blocks/?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create blocks request: %w", err)
	}
	rq.Header.Set(ezhttp.HeaderAuthorization, "Bearer "+accessToken)
	rq.Header.Set(ezhttp.HeaderUserAgent, ezhttp.UserAgent)

	rs, err := c.http.Do(rq)
	if err != nil {
		span.SetStatus(codes.Error, "failed to fetch blocks")
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	defer func() {
		_ = rs.Body.Close()
	}()
	span.SetAttributes(attribute.Int("status", rs.StatusCode))

	response := &BlocksResponse{StatusCode: rs.StatusCode}
	if !response.OK() {
		_, _ = io.Copy(io.Discard, rs.Body)
		return response, nil
	}

	var tree BlockTree
	if err = json.NewDecoder(rs.Body).Decode(&tree); err != nil {
		span.SetStatus(codes.Error, "failed to decode blocks")
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	if _, ok := tree.Blocks[tree.Root]; !ok {
		return nil, fmt.Errorf("%w: root block %q not in tree", ErrMalformedResponse, tree.Root)
	}
	response.Tree = &tree
	return response, nil
}
