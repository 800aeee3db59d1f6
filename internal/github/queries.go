package github

const searchQuery = `
query($q: String!, $type: SearchType!, $first: Int!, $cursor: String) {
  search(query: $q, type: $type, first: $first, after: $cursor) {
    pageInfo { hasNextPage endCursor }
    nodes {
      __typename
      ... on Issue { url number title updatedAt repository { name owner { login } } }
      ... on PullRequest { url number title updatedAt repository { name owner { login } } }
      ... on Discussion { url number title updatedAt repository { name owner { login } } }
    }
  }
}`

const commentFields = `author { login } body url createdAt`

const issueQuery = `
query($owner: String!, $repo: String!, $number: Int!) {
  repository(owner: $owner, name: $repo) {
    item: issue(number: $number) {
      url number title body state createdAt updatedAt
      author { login }
      comments(first: 100) { nodes { ` + commentFields + ` } }
    }
  }
}`

const pullRequestQuery = `
query($owner: String!, $repo: String!, $number: Int!) {
  repository(owner: $owner, name: $repo) {
    item: pullRequest(number: $number) {
      url number title body state merged createdAt updatedAt
      author { login }
      comments(first: 100) { nodes { ` + commentFields + ` } }
      reviews(first: 100) {
        nodes {
          author { login } state body submittedAt
          comments(first: 50) { nodes { ` + commentFields + ` } }
        }
      }
      commits(first: 100) { nodes { commit { oid message } } }
    }
  }
}`

const discussionQuery = `
query($owner: String!, $repo: String!, $number: Int!) {
  repository(owner: $owner, name: $repo) {
    item: discussion(number: $number) {
      url number title body closed createdAt updatedAt
      author { login }
      comments(first: 100) {
        nodes {
          ` + commentFields + `
          replies(first: 50) { nodes { ` + commentFields + ` } }
        }
      }
    }
  }
}`
