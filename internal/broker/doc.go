/*
Package broker owns the MQTT session the control loop uses to receive
update announcements.

A Session connects with client id "mc_daemon", a 20-second keep-alive, a
persistent (clean-session false) session, and a last-will message on topic
"test" warning that the consumer was lost. Once connected it subscribes to
every topic in settings.MqttTopics, substituting "{ID}" with the device id
and "{OID}" with the owner id extracted from the bearer token's JWT
payload, at QoS 2 (exactly-once delivery — see DESIGN.md for why this was
picked over QoS 0).

Every received message is decoded as a types.UpdateDescriptor and pushed
onto the Session's Descriptors channel; connection-state transitions are
pushed onto its States channel. internal/service drains both. When the
connection is lost, Session reports Disconnected right away, then retries
up to 12 times at connect_retry_seconds intervals, reporting Connected
again on success; after the last failed attempt it logs and stops trying.
*/
package broker
