package edxsvc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/plp/edmodule/core"
	"github.com/plp/edmodule/core/progress"
	metricsvc "github.com/plp/edmodule/services/metrics"
)

const progressPath = "/api/extended/edmoduleprogress"

// Client talks to the learning platform API.
type Client struct {
	http   *resty.Client
	logger core.Logger
	tracer trace.Tracer
}

var _ progress.Client = (*Client)(nil)

func NewClient(conf core.EDXConfig, logger core.Logger) *Client {
	rc := resty.New().
		SetBaseURL(conf.BaseURL).
		SetTimeout(conf.Timeout).
		SetRetryCount(conf.RetryCount).
		SetRetryWaitTime(conf.RetryWait).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return isTimeout(err)
			}
			return r.StatusCode() >= http.StatusInternalServerError
		})
	if conf.AccessToken != "" {
		rc.SetAuthToken(conf.AccessToken)
	} else {
		rc.SetHeader("X-Edx-Api-Key", conf.APIKey)
	}
	return &Client{
		http:   rc,
		logger: logger,
		tracer: otel.Tracer("github.com/plp/edmodule/services/edx"),
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// do sends the request and classifies its failures into the progress error kinds.
func (c *Client) do(ctx context.Context, method, path string, query map[string]string) (*resty.Response, error) {
	ctx, span := c.tracer.Start(ctx, "edx."+method+" "+path)
	defer span.End()

	data := make(map[string]interface{}, len(query))
	for k, v := range query {
		data[k] = v
	}
	rerr := &progress.RemoteError{Method: method, Path: path, Data: data}

	start := time.Now()
	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(query).
		Execute(method, path)
	metricsvc.EDXRequestDuration.Observe(time.Since(start).Seconds())

	var msg string
	switch {
	case err != nil && errors.Is(err, context.Canceled):
		span.RecordError(err)
		return nil, err
	case err != nil && isTimeout(err):
		rerr.Kind, msg = progress.ErrTimeout, "EDX connection timeout"
	case err != nil:
		rerr.Kind, rerr.Err, msg = progress.ErrUnavailable, err, "EDXNotAvailable"
	default:
		span.SetAttributes(attribute.Int("http.status_code", res.StatusCode()))
		if res.StatusCode() == http.StatusOK {
			metricsvc.EDXRequests.WithLabelValues("ok").Inc()
			return res, nil
		}
		rerr.StatusCode, rerr.Content = res.StatusCode(), res.String()
		if res.StatusCode() >= http.StatusInternalServerError {
			rerr.Kind, msg = progress.ErrUnavailable, "EDXNotAvailable"
		} else {
			rerr.Kind, msg = progress.ErrCommunication, "EDXCommunicationError"
		}
	}

	metricsvc.EDXRequests.WithLabelValues(outcome(rerr.Kind)).Inc()
	span.RecordError(rerr)
	span.SetStatus(codes.Error, rerr.Error())
	c.logger.Error(msg, rerr)
	return nil, rerr
}

func outcome(kind error) string {
	switch kind {
	case progress.ErrTimeout:
		return "timeout"
	case progress.ErrUnavailable:
		return "unavailable"
	default:
		return "communication_error"
	}
}

// GetCoursesProgress fetches the user's progress on the given courses, keyed by course id.
func (c *Client) GetCoursesProgress(ctx context.Context, username string, courseIDs []string) (map[string]map[string]interface{}, error) {
	res, err := c.do(ctx, http.MethodGet, progressPath, map[string]string{
		"user_id":   username,
		"course_id": strings.Join(courseIDs, ","),
	})
	if err != nil {
		return nil, err
	}

	data := make(map[string]map[string]interface{})
	if err = json.Unmarshal(res.Body(), &data); err != nil {
		rerr := &progress.RemoteError{
			Kind:       progress.ErrCommunication,
			Method:     http.MethodGet,
			Path:       progressPath,
			StatusCode: res.StatusCode(),
			Content:    res.String(),
			Err:        err,
		}
		c.logger.Error(fmt.Sprintf("decoding courses progress: %v", err), rerr)
		return nil, rerr
	}
	return data, nil
}
