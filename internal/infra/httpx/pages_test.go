package httpx

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/h2non/gock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	providerx "github.com/John-Robertt/nfofetch/internal/provider"
)

func TestPages_FetchPageSendsHeaders(t *testing.T) {
	defer gock.Off()

	gock.New("https://javdb565.com").
		Get("/v/AbCd12").
		MatchHeader("Cookie", "over18=1").
		MatchHeader("Referer", "https://javdb565.com/").
		Reply(200).
		BodyString("<html>ok</html>")

	client := &http.Client{}
	gock.InterceptClient(client)
	defer gock.RestoreClient(client)

	h := http.Header{}
	h.Set("Cookie", "over18=1")
	h.Set("Referer", "https://javdb565.com/")

	b, err := Pages{Client: client}.FetchPage(context.Background(), providerx.PageRequest{
		URL:    "https://javdb565.com/v/AbCd12",
		Header: h,
	})
	require.NoError(t, err)
	assert.Equal(t, "<html>ok</html>", string(b))
	assert.True(t, gock.IsDone())
}

func TestPages_NonSuccessIsHTTPStatusError(t *testing.T) {
	defer gock.Off()

	gock.New("https://javdb565.com").
		Get("/v/missing").
		Reply(403)

	client := &http.Client{}
	gock.InterceptClient(client)
	defer gock.RestoreClient(client)

	_, err := Pages{Client: client}.FetchPage(context.Background(), providerx.PageRequest{URL: "https://javdb565.com/v/missing"})
	require.Error(t, err)

	var he *providerx.HTTPStatusError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, 403, he.StatusCode)
	assert.Contains(t, err.Error(), "HTTP 403")
}

func TestPages_NilClient(t *testing.T) {
	_, err := Pages{}.FetchPage(context.Background(), providerx.PageRequest{URL: "https://javdb.com/v/x"})
	assert.Error(t, err)
}
