package logsvc

import (
	"bytes"
	"log"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/kazi/core/account"
)

func TestRollbarLogger_prepare(t *testing.T) {
	l := NewTestLogger()
	err := errors.New("boom")
	extras := map[string]interface{}{"group_id": "g1"}
	id := account.Identity{UserID: "u1", Role: account.RoleStudent, Name: "Student u1"}

	args := l.prepare("adding member", []interface{}{err, extras, id, account.Identity{UserID: "u2"}})

	assert.Equal(t, []interface{}{"adding member", err, extras}, args)
}

func TestRollbarLogger_print(t *testing.T) {
	var buf bytes.Buffer
	l := NewTestLogger()
	l.std = log.New(&buf, "", 0)

	l.Info("application started", "v1")

	assert.Equal(t, "application started\nv1\n", buf.String())
}
