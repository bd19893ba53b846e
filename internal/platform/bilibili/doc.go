// Package bilibili implements the acquire.Platform collaborator against the
// public bilibili web API.
//
// Resolve accepts BV ids, video URLs (with an optional ?p= part number) and
// b23.tv short links. Metadata comes from x/web-interface/view; when that
// endpoint is throttled the video page itself is scraped for og: metadata
// and the part's cid. Subtitle tracks come from x/player/v2 and their JSON
// bodies; audio for recognition comes from the DASH audio streams listed by
// x/player/playurl, or from yt-dlp when configured.
//
// API envelope codes are mapped onto services failure kinds so the runner's
// retry policy can tell throttling from missing videos and login walls.
package bilibili
