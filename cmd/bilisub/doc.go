// Command bilisub fetches subtitles for bilibili videos.
//
// "bilisub run" processes a batch of inputs in the foreground and writes the
// rendered files plus a report.json to the output directory. "bilisub serve"
// starts the HTTP task service; "bilisub tasks" inspects and manages the
// service's persisted tasks directly through its database.
package main
