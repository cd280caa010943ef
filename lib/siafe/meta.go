package siafe

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"time"

	"bussola-backend/lib/htmlutil"
	"bussola-backend/lib/restyutil"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/codes"
)

// Meta is the portal release information rendered in the login page
// footer. It is readable without credentials over plain HTTP, so callers
// can record which portal build an extraction ran against.
type Meta struct {
	Version string
	Build   string
}

var metaClient = newMetaClient()

func newMetaClient() *resty.Client {
	client := resty.New()
	client.SetTimeout(time.Second * 30)
	restyutil.InstrumentClient(client, "bussola.lib.siafe.http")
	return client
}

var (
	versionRegex = regexp.MustCompile(`Versão\s+([0-9][0-9.]*)`)
	buildRegex   = regexp.MustCompile(`Build\s+([0-9][0-9.\-]*)`)
)

// FetchMeta reads the portal version and build from the login page
// footer.
func FetchMeta(ctx context.Context, loginPageURL string) (Meta, error) {
	ctx, span := tracer.Start(ctx, "siafe:FetchMeta")
	defer span.End()

	if loginPageURL == "" {
		loginPageURL = loginURL
	}

	res, err := metaClient.R().
		SetContext(ctx).
		Get(loginPageURL)
	if err != nil {
		span.SetStatus(codes.Error, "failed to fetch login page")
		return Meta{}, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		span.SetStatus(codes.Error, "failed to parse login page html")
		return Meta{}, err
	}

	footer := htmlutil.CleanText(doc.Find("[id*='pt_footer'], .af_document_footer").Text())
	meta := Meta{}
	if groups := versionRegex.FindStringSubmatch(footer); len(groups) == 2 {
		meta.Version = groups[1]
	}
	if groups := buildRegex.FindStringSubmatch(footer); len(groups) == 2 {
		meta.Build = groups[1]
	}
	if meta.Version == "" && meta.Build == "" {
		span.SetStatus(codes.Error, "no release information in footer")
		return Meta{}, fmt.Errorf("login page footer carries no version or build marker")
	}
	return meta, nil
}
