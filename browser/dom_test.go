package browser

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const listingFixture = `<html><body>
<ul class="list">
  <li class="item"><a href="/detail/1"><div class="title">First <span>lot</span></div></a></li>
  <li class="item"><a href="/detail/2"><div class="title">Second</div></a></li>
</ul>
<script>var ignored = 1;</script>
</body></html>`

func TestParseHTMLFind(t *testing.T) {
	root, err := ParseHTML(listingFixture, "https://auction.example/list?page=1")
	require.NoError(t, err)

	items, err := root.FindAll(CSS("li.item"))
	require.NoError(t, err)
	require.Len(t, items, 2)

	title, err := items[0].FindOne(CSS(".title"))
	require.NoError(t, err)
	text, err := title.Text()
	require.NoError(t, err)
	require.Equal(t, "First\nlot", text)

	link, err := items[1].FindOne(CSS("a"))
	require.NoError(t, err)
	href, err := link.Attribute("href")
	require.NoError(t, err)
	require.Equal(t, "https://auction.example/detail/2", href)
}

func TestDOMElementMissing(t *testing.T) {
	root, err := ParseHTML(listingFixture, "")
	require.NoError(t, err)

	_, err = root.FindOne(CSS(".absent"))
	require.ErrorIs(t, err, ErrNotFound)

	_, err = root.FindOne(XPath("//li"))
	require.ErrorIs(t, err, ErrUnsupported)

	item, err := root.FindOne(CSS("li.item"))
	require.NoError(t, err)
	_, err = item.Attribute("data-id")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, item.Click(), ErrUnsupported)
}

func TestInnerTextSkipsScripts(t *testing.T) {
	root, err := ParseHTML(listingFixture, "")
	require.NoError(t, err)
	text, err := root.Text()
	require.NoError(t, err)
	require.NotContains(t, text, "ignored")
	require.Contains(t, text, "Second")
}

func TestWaitUntil(t *testing.T) {
	prev := PollInterval
	PollInterval = time.Millisecond
	t.Cleanup(func() { PollInterval = prev })

	calls := 0
	ok := WaitUntil(context.Background(), time.Second, func() bool {
		calls++
		return calls == 3
	})
	require.True(t, ok)
	require.Equal(t, 3, calls)

	ok = WaitUntil(context.Background(), 5*time.Millisecond, func() bool { return false })
	require.False(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ok = WaitUntil(ctx, time.Hour, func() bool { return false })
	require.False(t, ok)
}

func TestWaitForTimesOut(t *testing.T) {
	prev := PollInterval
	PollInterval = time.Millisecond
	t.Cleanup(func() { PollInterval = prev })

	root, err := ParseHTML(listingFixture, "")
	require.NoError(t, err)

	_, err = WaitFor(context.Background(), root, CSS(".never"), 5*time.Millisecond)
	require.True(t, errors.Is(err, ErrNotFound))

	el, err := WaitFor(context.Background(), root, CSS("ul.list"), 5*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, el)

	require.True(t, WaitGone(context.Background(), root, CSS(".never"), time.Millisecond))
}
