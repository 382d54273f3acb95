package nntp

// nntp response codes consumed by the session
// see RFC 3977 and RFC 4643
const (
	// greeting, posting allowed
	RPL_PostingAllowed = 200
	// greeting, posting not allowed
	RPL_PostingNotAllowed = 201
	// capability list follows
	RPL_Capabilities = 101
	// date and time of server
	RPL_Date = 111
	// group selected
	RPL_Group = 211
	// list of newsgroups follows
	RPL_List = 215
	// article body follows
	RPL_Body = 222
	// overview information follows
	RPL_Overview = 224
	// authentication accepted
	RPL_AuthAccepted = 281
	// password required
	RPL_MorePlease = 381
	// closing connection
	RPL_Quit = 205

	// no such newsgroup
	ERR_NoSuchGroup = 411
	// no article with that number
	ERR_NoArticleNumber = 420
	// no article with that number in this group
	ERR_NoSuchArticleNumber = 423
	// no article with that message-id
	ERR_NoSuchArticle = 430
	// authentication required
	ERR_AuthRequired = 480
	// authentication rejected
	ERR_AuthRejected = 482
	// command unavailable / permission denied
	ERR_AccessDenied = 502
)
