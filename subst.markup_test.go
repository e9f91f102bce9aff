package subst

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMarkup = `<!DOCTYPE html>
<html>
<head>
  <script type="text/x-template-manager" data-name="header">
    <h1>${title}</h1>
  </script>
  <script type="text/javascript">var x = "${ignored}";</script>
</head>
<body>
  <script type="text/x-template-manager" name="row"><li>${item}</li></script>
</body>
</html>`

func TestTemplateManager_LoadMarkup(t *testing.T) {
	ctx := context.Background()

	t.Run("loads matching scripts in document order", func(t *testing.T) {
		tm := MustNewTemplateManager()

		n, err := tm.LoadMarkupString(ctx, testMarkup)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		names, err := tm.Names(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"header", "row"}, names)

		header, err := tm.Get(ctx, "header")
		require.NoError(t, err)
		assert.Equal(t, "<h1>${title}</h1>", header.Raw())

		out, err := header.Process(ctx, map[string]any{"title": "Welcome"})
		require.NoError(t, err)
		assert.Equal(t, "<h1>Welcome</h1>", out)
	})

	t.Run("reloading adds versions", func(t *testing.T) {
		tm := MustNewTemplateManager()

		_, err := tm.LoadMarkupString(ctx, testMarkup)
		require.NoError(t, err)
		_, err = tm.LoadMarkupString(ctx, testMarkup)
		require.NoError(t, err)

		row, err := tm.Get(ctx, "row")
		require.NoError(t, err)
		assert.Equal(t, 2, row.Version())
	})

	t.Run("custom script type", func(t *testing.T) {
		tm := MustNewTemplateManager(WithScriptType("text/x-custom"))

		n, err := tm.LoadMarkupString(ctx, `<script type="text/x-custom" name="a">A</script>`+testMarkup)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		has, err := tm.Has(ctx, "header")
		require.NoError(t, err)
		assert.False(t, has)
	})

	t.Run("missing name fails before storing", func(t *testing.T) {
		tm := MustNewTemplateManager()

		markup := `<script type="text/x-template-manager" name="ok">fine</script>
<script type="text/x-template-manager">nameless</script>`

		n, err := tm.LoadMarkupString(ctx, markup)
		require.Error(t, err)
		assert.Equal(t, 0, n)
		assert.Contains(t, err.Error(), ErrMsgMarkupMissingName)

		names, err := tm.Names(ctx)
		require.NoError(t, err)
		assert.Empty(t, names)
	})

	t.Run("no scripts", func(t *testing.T) {
		tm := MustNewTemplateManager()

		n, err := tm.LoadMarkupString(ctx, "<p>nothing here</p>")
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})
}
