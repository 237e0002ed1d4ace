package edx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ccxcon/ccxcon/internal/ezhttp"
	"github.com/ccxcon/ccxcon/server/database"
)

// CCXRequest is the body sent to the upstream CCX api.
type CCXRequest struct {
	MasterCourseID     string   `json:"master_course_id"`
	CoachEmail         string   `json:"coach_email"`
	MaxStudentsAllowed int      `json:"max_students_allowed"`
	DisplayName        string   `json:"display_name"`
	CourseModules      []string `json:"course_modules,omitempty"`
}

// CreateCCX creates a custom course on the upstream instance.
func (c *Client) CreateCCX(ctx context.Context, instance *database.BackingInstance, ccx CCXRequest) error {
	ctx, span := c.tracer.Start(ctx, "edx.CreateCCX")
	defer span.End()
	span.SetAttributes(attribute.String("instance", instance.InstanceURL), attribute.String("master_course_id", ccx.MasterCourseID))

	token, err := c.AccessToken(ctx, instance)
	if err != nil {
		return err
	}

	body, err := json.Marshal(ccx)
	if err != nil {
		return fmt.Errorf("failed to encode ccx request: %w", err)
	}

	rq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(instance.InstanceURL, "/")+"/api/ccx/v0/ccx/", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create ccx request: %w", err)
	}
	rq.Header.Set(ezhttp.HeaderAuthorization, "Bearer "+token)
	rq.Header.Set(ezhttp.HeaderContentType, ezhttp.ContentTypeJSON)
	rq.Header.Set(ezhttp.HeaderUserAgent, ezhttp.UserAgent)

	rs, err := c.http.Do(rq)
	if err != nil {
		span.SetStatus(codes.Error, "failed to reach upstream")
		span.RecordError(err)
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	defer func() {
		_ = rs.Body.Close()
	}()

	if rs.StatusCode < http.StatusOK || rs.StatusCode >= http.StatusMultipleChoices {
		data, _ := io.ReadAll(io.LimitReader(rs.Body, 1024))
		err = &StatusError{StatusCode: rs.StatusCode, Body: string(data)}
		span.SetStatus(codes.Error, "bad upstream status")
		span.RecordError(err)
		return err
	}
	return nil
}
