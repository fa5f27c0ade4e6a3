package notification

// ContentSavingNotification is dispatched before documents are saved. Handlers may cancel.
type ContentSavingNotification struct {
	CancelableBase
	IDs   []string
	Names []string
}

func (*ContentSavingNotification) NotificationName() string { return "content.saving" }

// ContentSavedNotification is delivered after the saving tree commits.
type ContentSavedNotification struct {
	IDs []string
}

func (*ContentSavedNotification) NotificationName() string { return "content.saved" }

// ContentDeletingNotification is dispatched before a document is deleted. Handlers may cancel.
type ContentDeletingNotification struct {
	CancelableBase
	ID string
}

func (*ContentDeletingNotification) NotificationName() string { return "content.deleting" }

// ContentDeletedNotification is delivered after the deleting tree commits.
type ContentDeletedNotification struct {
	IDs []string
}

func (*ContentDeletedNotification) NotificationName() string { return "content.deleted" }

// ContentPublishedNotification is delivered after a publish commits.
type ContentPublishedNotification struct {
	IDs []string
}

func (*ContentPublishedNotification) NotificationName() string { return "content.published" }

// ContentUnpublishedNotification is delivered after an unpublish commits.
type ContentUnpublishedNotification struct {
	IDs []string
}

func (*ContentUnpublishedNotification) NotificationName() string { return "content.unpublished" }

// ContentMovedNotification is delivered after a move commits.
type ContentMovedNotification struct {
	ID          string
	OldParentID string
	NewParentID string
}

func (*ContentMovedNotification) NotificationName() string { return "content.moved" }
