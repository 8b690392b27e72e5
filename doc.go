// Package strand is the Go client SDK for Strand, a partitioned NoSQL
// document store. The SDK marshals calls into HTTP requests against
// the Strand service API and decodes the JSON responses; it implements
// no server or storage of its own.
//
// Connect with a connection.Config and walk down to a container:
//
//	u, _ := url.Parse("https://myaccount.strand.example")
//	client, err := strand.New(connection.NewConfig(u, apiKey))
//	if err != nil {
//		// ...
//	}
//	container := client.Database("appdb").Container("orders")
//
// Besides document CRUD, containers expose the change feed: an
// append-only per-container log of create, replace and delete events,
// readable incrementally through ChangeFeedPager. Progress is captured
// in a serializable continuation token that survives process restarts
// and stays valid across partition splits and merges.
package strand
