package api

const (
	// PingEndpoint is the endpoint for checking the API status
	PingEndpoint = "/ping"
	// GroupsEndpoint is the endpoint for creating a new membership group
	GroupsEndpoint = "/groups"
	// GroupEndpoint is the endpoint to get the group tree info
	GroupURLParam = "groupId"
	GroupEndpoint = "/groups/{" + GroupURLParam + "}"
	// GroupRootEndpoint is the endpoint to get the current tree root
	GroupRootEndpoint = GroupEndpoint + "/root"
	// MembersEndpoint is the endpoint for registering a commitment
	MembersEndpoint = GroupEndpoint + "/members"
	// MemberEndpoint is the endpoint to resolve a commitment's leaf index
	CommitmentURLParam = "commitment"
	MemberEndpoint     = MembersEndpoint + "/{" + CommitmentURLParam + "}"
	// MemberPathEndpoint is the endpoint to get a leaf's merkle path
	LeafIndexURLParam  = "leafIndex"
	MemberPathEndpoint = MembersEndpoint + "/{" + LeafIndexURLParam + "}/path"
	// NullifierEndpoint is the endpoint to check whether a nullifier was
	// already used within an action context
	ContextURLParam   = "contextId"
	NullifierURLParam = "nullifier"
	NullifierEndpoint = GroupEndpoint + "/contexts/{" + ContextURLParam + "}/nullifiers/{" + NullifierURLParam + "}"
	// ActionsEndpoint is the endpoint for creating a new action (a vote
	// proposal or a comment thread)
	ActionsEndpoint = "/actions"
	// ActionEndpoint is the endpoint to get an action's parameters
	ActionEndpoint = "/actions/{" + GroupURLParam + "}/{" + ContextURLParam + "}"
	// VotesEndpoint is the endpoint for submitting an anonymous vote
	VotesEndpoint = "/votes"
	// CommentsEndpoint is the endpoint for submitting an anonymous comment
	CommentsEndpoint = "/comments"
)
