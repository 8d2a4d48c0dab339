// Package resolver decides which upstream access token serves an inbound
// call and keeps stored tokens fresh.
package resolver
