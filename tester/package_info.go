// Package tester sits between application code and its backend for the duration of one test.
//
// A Tester installs a Dispatcher as the current delegate of an apiproxy.Store. The Dispatcher
// classifies each call with a Table: URL fetches can be answered by a FetchHandler without
// touching the network, task enqueues are recorded and swallowed, datastore writes and outgoing
// mail are forwarded and recorded, and everything else is forwarded untouched. TearDown uses what
// was recorded to undo the test's side effects, then puts back the delegate and environment that
// were current before SetUp.
//
//	func TestSomething(t *testing.T) {
//		tt := tester.Start(t)
//		ctx := tt.Context(context.Background())
//		keys, err := datastore.Put(ctx, entity)
//		...
//	}
package tester
