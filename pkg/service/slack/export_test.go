package slack

var TruncateToMaxBytes = truncateToMaxBytes
