package device

import (
	"testing"

	"github.com/martinsuchenak/labconsole/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInterfaces(t *testing.T) {
	rows, err := ParseInterfaces(" Gi0/0=10.0.0.1/30, Gi0/1= ,Fa0/1,,")
	require.NoError(t, err)
	assert.Equal(t, []model.Interface{
		{Name: "Gi0/0", IP: "10.0.0.1/30"},
		{Name: "Gi0/1"},
		{Name: "Fa0/1"},
	}, rows)

	rows, err = ParseInterfaces("")
	require.NoError(t, err)
	assert.Empty(t, rows)

	_, err = ParseInterfaces("=10.0.0.1")
	assert.Error(t, err)
}
