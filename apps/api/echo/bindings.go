package echoapi

import (
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/kazi/core"
	"github.com/trezcool/kazi/core/submission"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}
	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// SubmissionRequest is the JSON form of a submission. Multipart requests carry the same fields plus a "file" part.
type SubmissionRequest struct {
	MilestoneID string `json:"milestone_id" form:"milestone_id"`
	Content     string `json:"content" form:"content"`
	Description string `json:"description" form:"description"`
}

// bindSubmission reads a JSON or multipart submission. The returned closer releases the uploaded file.
func bindSubmission(ctx echo.Context) (SubmissionRequest, submission.NewSubmission, io.Closer, error) {
	var data SubmissionRequest
	closer := io.NopCloser(nil)

	if !strings.HasPrefix(ctx.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		if err := ctx.Bind(&data); err != nil {
			return data, submission.NewSubmission{}, closer, errors.Wrap(err, "binding to SubmissionRequest")
		}
		return data, submission.NewSubmission{Content: data.Content, Description: data.Description}, closer, nil
	}

	data.MilestoneID = ctx.FormValue("milestone_id")
	data.Content = ctx.FormValue("content")
	data.Description = ctx.FormValue("description")
	ns := submission.NewSubmission{Content: data.Content, Description: data.Description}

	fh, err := ctx.FormFile("file")
	switch {
	case err == http.ErrMissingFile:
		return data, ns, closer, nil
	case err != nil:
		return data, ns, closer, core.NewValidationError(nil, core.FieldError{Field: "file", Error: err.Error()})
	}
	f, err := fh.Open()
	if err != nil {
		return data, ns, closer, errors.Wrap(err, "opening uploaded file")
	}
	ns.File = &submission.Upload{Name: fh.Filename, ContentType: contentType(fh), Body: f}
	return data, ns, f, nil
}

func contentType(fh *multipart.FileHeader) string {
	if ct := fh.Header.Get(echo.HeaderContentType); ct != "" {
		return ct
	}
	return echo.MIMEOctetStream
}

type (
	contentRequest struct {
		Content string `json:"content"`
	}

	reasonRequest struct {
		Reason string `json:"reason"`
	}

	classRequest struct {
		ClassID string `json:"class_id"`
	}

	templateRequest struct {
		TemplateID string `json:"template_id"`
	}

	memberRoleRequest struct {
		Role string `json:"role"`
	}

	statusRequest struct {
		Status *int `json:"status"`
	}

	completedRequest struct {
		Completed *bool `json:"completed"`
	}
)
