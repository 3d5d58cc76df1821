package models

import "github.com/Vasu1712/buddychat/internal/docstore"

// Collection layout:
//
//	conversations/{conversationId}
//	conversations/{conversationId}/messages/{messageId}
//	userConversations/{userId}/threads/{conversationId}
//	users/{userId}
var (
	Conversations = docstore.Collection("conversations")
	Users         = docstore.Collection("users")
)

func ConversationRef(conversationID string) docstore.DocRef {
	return Conversations.Doc(conversationID)
}

func Messages(conversationID string) docstore.CollectionRef {
	return ConversationRef(conversationID).Collection("messages")
}

func Threads(userID string) docstore.CollectionRef {
	return docstore.Collection("userConversations", userID, "threads")
}

func ThreadRef(userID, conversationID string) docstore.DocRef {
	return Threads(userID).Doc(conversationID)
}

func UserRef(userID string) docstore.DocRef {
	return Users.Doc(userID)
}
