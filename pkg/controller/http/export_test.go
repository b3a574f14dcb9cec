package http

var VerifyWebhookSignature = verifyWebhookSignature
