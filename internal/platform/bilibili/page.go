package bilibili

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"bilisub/internal/services"
	"bilisub/internal/subtitle"
)

// titleSuffix is appended by the site to every og:title.
const titleSuffix = "_哔哩哔哩_bilibili"

var (
	cidPattern      = regexp.MustCompile(`"cid":(\d+)`)
	durationPattern = regexp.MustCompile(`"duration":(\d+)`)
)

// followLink loads a link (b23.tv short links included) and finds the BV id
// in the final URL or, failing that, in the page's canonical metadata.
func (c *Client) followLink(ctx context.Context, link string) (string, int, error) {
	resp, err := c.get(ctx, "resolve link", link, nil)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()
	if resp.Request != nil && resp.Request.URL != nil {
		if bvid, part := ParseInput(resp.Request.URL.String()); bvid != "" {
			return bvid, part, nil
		}
	}
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", 0, services.Classify(services.KindTransientNetwork, "resolve link", err)
	}
	for _, candidate := range []string{
		attr(doc, `meta[property="og:url"]`, "content"),
		attr(doc, `link[rel="canonical"]`, "href"),
	} {
		if bvid, part := ParseInput(candidate); bvid != "" {
			return bvid, part, nil
		}
	}
	return "", 0, services.Classify(services.KindInvalidInput, "resolve link", fmt.Errorf("no video behind %s", link))
}

// scrapePage reads title, duration, and cid from the video page. The cid
// and duration come from the embedded initial state; the page only needs
// to be the right part.
func (c *Client) scrapePage(ctx context.Context, bvid string, part int) (subtitle.VideoRef, error) {
	pageURL := c.videoURL(bvid, part)
	resp, err := c.get(ctx, "scrape", pageURL, nil)
	if err != nil {
		return subtitle.VideoRef{}, err
	}
	defer resp.Body.Close()
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return subtitle.VideoRef{}, services.Classify(services.KindTransientNetwork, "scrape", err)
	}
	ref, cid := parsePage(doc)
	if cid == 0 {
		return subtitle.VideoRef{}, services.Classify(services.KindNotFound, "scrape",
			fmt.Errorf("no cid on %s", pageURL))
	}
	ref.ID = VideoID(bvid, part)
	ref.URL = pageURL
	if ref.Title == "" {
		ref.Title = bvid
	}
	c.rememberCID(ref.ID, cid)
	return ref, nil
}

// parsePage extracts what scrapePage needs from a parsed video page.
func parsePage(doc *goquery.Document) (subtitle.VideoRef, int64) {
	var ref subtitle.VideoRef
	title := attr(doc, `meta[property="og:title"]`, "content")
	if title == "" {
		title = strings.TrimSpace(doc.Find("h1").First().Text())
	}
	ref.Title = strings.TrimSpace(strings.TrimSuffix(title, titleSuffix))

	var cid int64
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		if !strings.Contains(text, "__INITIAL_STATE__") {
			return true
		}
		if m := cidPattern.FindStringSubmatch(text); m != nil {
			cid, _ = strconv.ParseInt(m[1], 10, 64)
		}
		if m := durationPattern.FindStringSubmatch(text); m != nil {
			secs, _ := strconv.Atoi(m[1])
			ref.Duration = time.Duration(secs) * time.Second
		}
		return false
	})
	if ref.Duration == 0 {
		if secs, err := strconv.Atoi(attr(doc, `meta[itemprop="duration"]`, "content")); err == nil {
			ref.Duration = time.Duration(secs) * time.Second
		}
	}
	return ref, cid
}

func attr(doc *goquery.Document, selector, name string) string {
	value, _ := doc.Find(selector).First().Attr(name)
	return strings.TrimSpace(value)
}
