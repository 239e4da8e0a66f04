// Package wire encodes and decodes the binary messages exchanged with the backend services.
//
// Messages use the protobuf wire format (proto3 field numbering, no code generation; encoding is
// done with google.golang.org/protobuf/encoding/protowire). Decoders skip fields they do not know
// and fail with a *DecodeError on truncated input, invalid varints or unexpected wire types.
//
// Layout, by message:
//
//	Key                      1 app, 2 namespace, 3 element (repeated PathElement)
//	PathElement              1 kind, 2 id (int64), 3 name
//	Entity                   1 key (Key), 2 property (repeated Property)
//	Property                 1 name, 2 string_value, 3 int_value, 4 double_value, 5 bool_value, 6 bytes_value
//	Transaction              1 handle (uint64), 2 app
//	PutRequest               1 entity (repeated Entity), 2 transaction
//	PutResponse              1 key (repeated Key)
//	GetRequest               1 key (repeated Key), 2 transaction
//	GetResponse              1 found (repeated Entity), 2 missing (repeated Key)
//	DeleteRequest            1 key (repeated Key), 2 transaction
//	BeginTransactionRequest  1 app
//	ActiveTransactions{Req}  1 app
//	ActiveTransactions{Resp} 1 transaction (repeated Transaction)
//	QueryRequest             1 app, 2 namespace, 3 kind, 4 keys_only, 5 limit
//	QueryResponse            1 entity (repeated Entity)
//	MailMessage              1 sender, 2 reply_to, 3 to, 4 cc, 5 bcc, 6 subject, 7 text_body,
//	                         8 html_body, 9 attachment (1 file_name, 2 data), 11 header (1 name, 2 value)
//	TaskAddRequest           1 queue_name, 2 task_name, 3 eta_usec, 4 method, 5 url, 6 header, 7 body
//	TaskAddResponse          1 chosen_task_name
//	QueueRequest             1 queue_name
//	QueryTasksResponse       1 task (repeated TaskAddRequest)
//	FetchRequest             1 method, 2 url, 3 header, 4 payload, 5 follow_redirects, 6 deadline (double seconds)
//	FetchResponse            1 content, 2 status_code, 3 header, 4 content_was_truncated, 5 final_url
//
// Only ExtractCreatedKeys, DecodeMailMessage, DecodeTaskAddRequest and EncodeFetchResponse are
// needed to observe or virtualize calls; the rest exist so that the local backends and the typed
// callers in the api packages never have to touch bytes themselves.
package wire
